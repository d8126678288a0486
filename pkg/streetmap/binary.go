package streetmap

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"unsafe"

	"github.com/azybler/delivery_router/pkg/geo"
)

const (
	magicBytes  = "GOOBRMAP"
	version     = uint32(1)
	maxStreets  = 5_000_000
	maxSegments = 50_000_000
	maxNameLen  = 1 << 12
)

// fileHeader is the binary header.
type fileHeader struct {
	Magic       [8]byte
	Version     uint32
	NumStreets  uint32
	NumSegments uint32 // forward segments only; reverses are implied
}

// WriteBinary serializes m to a snapshot file that ReadBinary restores
// without reparsing text. The file is written to a temporary path and
// renamed into place.
//
// Layout: header, street name table (uint32 length + bytes each), then the
// segment columns LatA, LonA, LatB, LonB (int32 E7) and Street (uint32 index
// into the name table), then a CRC32 of everything before it.
func WriteBinary(path string, m *StreetMap) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		f.Close()
		os.Remove(tmpPath) // clean up on error
	}()

	bw := bufio.NewWriter(f)
	crcWriter := crc32Writer{w: bw, hash: crc32.NewIEEE()}
	w := &crcWriter

	var latA, lonA, latB, lonB []int32
	var street []uint32
	for i, name := range m.names {
		for _, s := range m.streetSegments(name) {
			latA = append(latA, s.Start.LatE7)
			lonA = append(lonA, s.Start.LonE7)
			latB = append(latB, s.End.LatE7)
			lonB = append(lonB, s.End.LonE7)
			street = append(street, uint32(i))
		}
	}

	hdr := fileHeader{
		Version:     version,
		NumStreets:  uint32(len(m.names)),
		NumSegments: uint32(len(street)),
	}
	copy(hdr.Magic[:], magicBytes)
	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, name := range m.names {
		if err := writeString(w, name); err != nil {
			return fmt.Errorf("write street name: %w", err)
		}
	}

	for _, col := range []struct {
		name string
		data []int32
	}{{"LatA", latA}, {"LonA", lonA}, {"LatB", latB}, {"LonB", lonB}} {
		if err := writeInt32Slice(w, col.data); err != nil {
			return fmt.Errorf("write %s: %w", col.name, err)
		}
	}
	if err := writeUint32Slice(w, street); err != nil {
		return fmt.Errorf("write Street: %w", err)
	}

	// CRC32 trailer, outside the checksummed stream.
	if err := binary.Write(bw, binary.LittleEndian, crcWriter.hash.Sum32()); err != nil {
		return fmt.Errorf("write CRC32: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	// Atomic rename.
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// ReadBinary restores a street map written by WriteBinary.
func ReadBinary(path string) (*StreetMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	crcReader := crc32Reader{r: br, hash: crc32.NewIEEE()}
	r := &crcReader

	var hdr fileHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if string(hdr.Magic[:]) != magicBytes {
		return nil, fmt.Errorf("invalid magic bytes: %q", hdr.Magic)
	}
	if hdr.Version != version {
		return nil, fmt.Errorf("unsupported version: %d", hdr.Version)
	}
	if hdr.NumStreets > maxStreets {
		return nil, fmt.Errorf("NumStreets %d exceeds limit %d", hdr.NumStreets, maxStreets)
	}
	if hdr.NumSegments > maxSegments {
		return nil, fmt.Errorf("NumSegments %d exceeds limit %d", hdr.NumSegments, maxSegments)
	}

	names := make([]string, hdr.NumStreets)
	for i := range names {
		if names[i], err = readString(r); err != nil {
			return nil, fmt.Errorf("read street name %d: %w", i, err)
		}
	}

	n := int(hdr.NumSegments)
	latA, err := readInt32Slice(r, n)
	if err != nil {
		return nil, fmt.Errorf("read LatA: %w", err)
	}
	lonA, err := readInt32Slice(r, n)
	if err != nil {
		return nil, fmt.Errorf("read LonA: %w", err)
	}
	latB, err := readInt32Slice(r, n)
	if err != nil {
		return nil, fmt.Errorf("read LatB: %w", err)
	}
	lonB, err := readInt32Slice(r, n)
	if err != nil {
		return nil, fmt.Errorf("read LonB: %w", err)
	}
	street, err := readUint32Slice(r, n)
	if err != nil {
		return nil, fmt.Errorf("read Street: %w", err)
	}

	expectedCRC := crcReader.hash.Sum32()
	var storedCRC uint32
	if err := binary.Read(br, binary.LittleEndian, &storedCRC); err != nil {
		return nil, fmt.Errorf("read CRC32: %w", err)
	}
	if storedCRC != expectedCRC {
		return nil, fmt.Errorf("CRC32 mismatch: stored=%08x computed=%08x", storedCRC, expectedCRC)
	}

	m := New()
	for i := range n {
		if street[i] >= hdr.NumStreets {
			return nil, fmt.Errorf("Street[%d]=%d >= NumStreets=%d", i, street[i], hdr.NumStreets)
		}
		a := geo.Coord{LatE7: latA[i], LonE7: lonA[i]}
		b := geo.Coord{LatE7: latB[i], LonE7: lonB[i]}
		if err := geo.Validate(a.Lat(), a.Lon()); err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
		if err := geo.Validate(b.Lat(), b.Lon()); err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
		m.AddStreet(names[street[i]], a, b)
	}
	if m.NumCoords() == 0 {
		return nil, fmt.Errorf("snapshot has no street segments")
	}
	return m, nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	if n > maxNameLen {
		return "", fmt.Errorf("name length %d exceeds limit %d", n, maxNameLen)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

// Zero-copy I/O helpers using unsafe.Slice. The snapshot is little-endian,
// matching every platform the tools are built for.

func writeUint32Slice(w io.Writer, s []uint32) error {
	if len(s) == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*4)
	_, err := w.Write(b)
	return err
}

func writeInt32Slice(w io.Writer, s []int32) error {
	if len(s) == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*4)
	_, err := w.Write(b)
	return err
}

func readUint32Slice(r io.Reader, n int) ([]uint32, error) {
	if n == 0 {
		return nil, nil
	}
	s := make([]uint32, n)
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), n*4)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return s, nil
}

func readInt32Slice(r io.Reader, n int) ([]int32, error) {
	if n == 0 {
		return nil, nil
	}
	s := make([]int32, n)
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), n*4)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return s, nil
}

type crc32Hash interface {
	Write([]byte) (int, error)
	Sum32() uint32
}

type crc32Writer struct {
	w    io.Writer
	hash crc32Hash
}

func (cw *crc32Writer) Write(p []byte) (int, error) {
	cw.hash.Write(p)
	return cw.w.Write(p)
}

type crc32Reader struct {
	r    io.Reader
	hash crc32Hash
}

func (cr *crc32Reader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.hash.Write(p[:n])
	}
	return n, err
}
