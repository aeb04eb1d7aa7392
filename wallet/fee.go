package wallet

import "math"

const (
	// InputSignatureSize is the unlocking script budget per input: a DER signature with
	// its sighash byte (up to 75 bytes with push opcodes) and a compressed public key
	// (33 bytes). Real signatures are usually shorter, so fees come out slightly high.
	InputSignatureSize = 108

	// OutputSize is the weight of one extra output used for the change/dust decision.
	OutputSize = 32
)

// EstimateFee prices a transaction of unsignedSize bytes once each of its inputs
// carries a signature. It saturates at math.MaxInt64.
func EstimateFee(unsignedSize, inputs int, feeRate int64) int64 {
	size := int64(unsignedSize) + int64(inputs)*InputSignatureSize
	if feeRate > 0 && size > math.MaxInt64/feeRate {
		return math.MaxInt64
	}
	return size * feeRate
}

// FeePerOutput is what adding one more output costs at feeRate.
func FeePerOutput(feeRate int64) int64 {
	if feeRate > math.MaxInt64/OutputSize {
		return math.MaxInt64
	}
	return feeRate * OutputSize
}
