package loader

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/lbryio/lbcd/wire"
	"github.com/valyala/bytebufferpool"
)

// maxBlockSize bounds the size field read in front of every block, so a corrupt file
// cannot make us allocate gigabytes.
const maxBlockSize = 8 * 1000 * 1000

// BlockFile reads the blocks stored in one lbrycrd blk*.dat file. Each record is the
// network magic, the little endian block size and the serialized block. Files are
// preallocated, so a run of zero bytes after the last block marks the end.
type BlockFile struct {
	filename    string
	firstHeight int
	lastHeight  int
	blocks      int

	magic  [4]byte
	file   *os.File
	reader *bufio.Reader
	closed bool
}

// OpenBlockFile opens filename for reading blocks of the network identified by net.
func OpenBlockFile(filename string, net wire.BitcoinNet) (*BlockFile, error) {
	bf := &BlockFile{filename: filename}
	return bf, bf.open(net)
}

func (bf *BlockFile) open(net wire.BitcoinNet) error {
	binary.LittleEndian.PutUint32(bf.magic[:], uint32(net))
	file, err := os.OpenFile(bf.filename, os.O_RDONLY, 0)
	if err != nil {
		return errors.Wrap(err, "opening block file")
	}
	bf.file = file
	bf.reader = bufio.NewReaderSize(file, 1<<20)
	return nil
}

func (bf *BlockFile) Filename() string {
	return bf.filename
}

func (bf *BlockFile) Close() error {
	if bf.closed || bf.file == nil {
		return nil
	}
	bf.closed = true
	return errors.WithStack(bf.file.Close())
}

// NextBlock returns the next block in the file, or io.EOF once there are no more.
func (bf *BlockFile) NextBlock() (*wire.MsgBlock, error) {
	if bf.closed {
		return nil, errors.New("block file closed")
	}

	var magic [4]byte
	_, err := io.ReadFull(bf.reader, magic[:])
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, errors.WithStack(err)
	}
	if magic == [4]byte{} {
		return nil, io.EOF
	}
	if magic != bf.magic {
		return nil, errors.Newf("%s: bad magic %x, expected %x", bf.filename, magic, bf.magic)
	}

	var size uint32
	err = binary.Read(bf.reader, binary.LittleEndian, &size)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: reading block size", bf.filename)
	}
	if size > maxBlockSize {
		return nil, errors.Newf("%s: block size %d is too large", bf.filename, size)
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	_, err = io.CopyN(buf, bf.reader, int64(size))
	if err != nil {
		return nil, errors.Wrapf(err, "%s: reading %d byte block", bf.filename, size)
	}

	block := &wire.MsgBlock{}
	r := bytes.NewReader(buf.B)
	err = block.Deserialize(r)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: decoding block", bf.filename)
	}
	if r.Len() != 0 {
		return nil, errors.Newf("%s: block %s is %d bytes shorter than its size field", bf.filename, block.BlockHash(), r.Len())
	}

	return block, nil
}

// WriteBlock appends block to w in the blk*.dat record format.
func WriteBlock(w io.Writer, net wire.BitcoinNet, block *wire.MsgBlock) error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	err := block.Serialize(buf)
	if err != nil {
		return errors.WithStack(err)
	}

	var head [8]byte
	binary.LittleEndian.PutUint32(head[:4], uint32(net))
	binary.LittleEndian.PutUint32(head[4:], uint32(buf.Len()))
	_, err = w.Write(head[:])
	if err != nil {
		return errors.WithStack(err)
	}
	_, err = w.Write(buf.B)
	return errors.WithStack(err)
}
