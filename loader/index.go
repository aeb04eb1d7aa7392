package loader

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// fileInfoPrefix keys the per-file records ("f" + little endian file number) in the
// block index leveldb that lbrycrd keeps under blocks/index.
const fileInfoPrefix = "f"

// base128 decodes the variable length integers lbrycrd uses inside its leveldb records.
// They are not the compact sizes of the wire format, nor binary.Uvarint: each
// continuation byte also adds one.
// https://bitcoin.stackexchange.com/questions/67515/format-of-a-block-keys-contents-in-bitcoinds-leveldb
func base128(b []byte, offset int) (uint64, int, error) {
	var n uint64
	for {
		if offset >= len(b) {
			return 0, offset, errors.New("truncated varint")
		}
		ch := b[offset]
		offset++
		n = (n << 7) | uint64(ch&0x7f)
		if ch&0x80 == 0 {
			return n, offset, nil
		}
		n++
	}
}

// blockFilesOrderedByHeight lists the blk*.dat files of blocksDir, ordered by the height
// of the first block in each file.
func blockFilesOrderedByHeight(blocksDir string) ([]*BlockFile, error) {
	db, err := leveldb.OpenFile(filepath.Join(blocksDir, "index"), &opt.Options{ReadOnly: true, ErrorIfMissing: true})
	if err != nil {
		return nil, errors.Wrap(err, "opening block index")
	}
	defer db.Close()

	var blockFiles []*BlockFile
	iter := db.NewIterator(util.BytesPrefix([]byte(fileInfoPrefix)), nil)
	for iter.Next() {
		// the returned slices are only valid until the next call to Next
		key := iter.Key()
		value := iter.Value()
		if len(key) != 5 {
			continue
		}

		fileNum := binary.LittleEndian.Uint32(key[1:])

		// blocks, size, undo size, first height, last height, first time, last time
		var fields [5]uint64
		offset := 0
		for i := range fields {
			fields[i], offset, err = base128(value, offset)
			if err != nil {
				iter.Release()
				return nil, errors.Wrapf(err, "file info %d", fileNum)
			}
		}

		blockFiles = append(blockFiles, &BlockFile{
			filename:    filepath.Join(blocksDir, fmt.Sprintf("blk%05d.dat", fileNum)),
			firstHeight: int(fields[3]),
			lastHeight:  int(fields[4]),
			blocks:      int(fields[0]),
		})
	}
	iter.Release()

	err = iter.Error()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	sort.Slice(blockFiles, func(i, j int) bool {
		return blockFiles[i].firstHeight < blockFiles[j].firstHeight
	})

	return blockFiles, nil
}
