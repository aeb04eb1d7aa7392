package lbrycrd

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/cockroachdb/errors"
	"github.com/golang/protobuf/proto"
	pb "github.com/lbryio/types/v2/go"
	"golang.org/x/crypto/ripemd160"
)

const (
	opReturn = 0x6a //OP_RETURN = 106
	purchase = 0x50 //PURCHASE = 80
)

// IsPurchaseScript returns true if the script for the vout contains the OP_RETURN + 'P' byte identifier for a purchase
func IsPurchaseScript(script []byte) bool {
	if len(script) > 2 {
		if script[0] == opReturn && script[2] == purchase {
			_, err := ParsePurchaseScript(script)
			return err == nil
		}
	}
	return false
}

// ParsePurchaseScript returns the purchase from script bytes or errors if invalid
func ParsePurchaseScript(script []byte) (*pb.Purchase, error) {
	data, err := parseDataScript(script)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || data[0] != purchase {
		return nil, errors.New("the first byte must be 'P'(0x50) to be a purchase script")
	}
	p := &pb.Purchase{}
	err = proto.Unmarshal(data[1:], p)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return p, nil
}

// PurchaseClaimID is the hex claim id a purchase script pays for, or "" if the script is not a purchase.
func PurchaseClaimID(script []byte) string {
	if !IsPurchaseScript(script) {
		return ""
	}
	p, err := ParsePurchaseScript(script)
	if err != nil {
		return ""
	}
	return hex.EncodeToString(ReverseBytes(p.GetClaimHash()))
}

func parseDataScript(script []byte) ([]byte, error) {
	// OP_RETURN (bytes) DATA
	if len(script) <= 1 {
		return nil, errors.New("there is no script to parse")
	}
	if script[0] != opReturn {
		return nil, errors.New("the first byte of script must be an OP_RETURN to quality as un-spendable data")
	}
	dataBytesToRead := int(script[1])
	if (len(script) - dataBytesToRead - 2) != 0 {
		return nil, errors.Newf("supposed to have %d bytes to read but the script is %d bytes", dataBytesToRead, len(script))
	}
	return script[2:], nil
}

// ReverseBytes reverses a byte slice. useful for switching endian-ness
func ReverseBytes(b []byte) []byte {
	r := make([]byte, len(b))
	for left, right := 0, len(b)-1; left <= right; left, right = left+1, right-1 {
		r[left], r[right] = b[right], b[left]
	}
	return r
}

// ClaimIDFromOutpoint derives the claim id of a claim created at txid:nout.
func ClaimIDFromOutpoint(txid string, nout int) (string, error) {
	// convert transaction id to byte array
	txidBytes, err := hex.DecodeString(txid)
	if err != nil {
		return "", errors.WithStack(err)
	}

	// reverse (make big-endian)
	txidBytes = ReverseBytes(txidBytes)

	// append nout
	noutBytes := make([]byte, 4) // num bytes in uint32
	binary.BigEndian.PutUint32(noutBytes, uint32(nout))
	txidBytes = append(txidBytes, noutBytes...)

	// sha256 it
	s := sha256.New()
	s.Write(txidBytes)

	// ripemd it
	r := ripemd160.New()
	r.Write(s.Sum(nil))

	// reverse (make little-endian)
	res := ReverseBytes(r.Sum(nil))

	return hex.EncodeToString(res), nil
}
