package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"

	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/indexer/store"
	"github.com/google/uuid"
)

// Reader gives access to one verified segment file. The header and the body
// are checksummed on open and every section bound is checked, so a torn or
// corrupted commit is rejected with an error before any of it is used.
type Reader struct {
	file     *os.File
	filePath string
	header   SegmentHeader
	dict     []DictEntry
	body     []byte
}

func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat segment file: %w", err)
	}
	size := info.Size()
	if size < int64(HeaderSize+FooterSize) {
		f.Close()
		return nil, fmt.Errorf("invalid segment file: too short (%d bytes)", size)
	}
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("reading segment header: %w", err)
	}
	if magic := binary.LittleEndian.Uint32(headerBytes[0:4]); magic != MagicBytes {
		f.Close()
		return nil, fmt.Errorf("invalid segment file: bad magic bytes %x", magic)
	}
	if version := binary.LittleEndian.Uint32(headerBytes[4:8]); version != FormatVersion {
		f.Close()
		return nil, fmt.Errorf("unsupported segment version %d", version)
	}
	header, err := decodeHeader(headerBytes)
	if err != nil {
		f.Close()
		return nil, err
	}

	bodyLen := size - int64(HeaderSize) - int64(FooterSize)
	buf := make([]byte, bodyLen+int64(FooterSize))
	if _, err := f.ReadAt(buf, int64(HeaderSize)); err != nil {
		f.Close()
		return nil, fmt.Errorf("reading segment body: %w", err)
	}
	body, footer := buf[:bodyLen], buf[bodyLen:]
	if binary.LittleEndian.Uint32(footer[4:8]) != MagicBytes {
		f.Close()
		return nil, fmt.Errorf("invalid segment file: bad footer")
	}
	if want, got := binary.LittleEndian.Uint32(footer[0:4]), crc32.ChecksumIEEE(body); want != got {
		f.Close()
		return nil, fmt.Errorf("segment checksum mismatch: want %08x, got %08x", want, got)
	}

	r := &Reader{
		file:     f,
		filePath: path,
		header:   header,
		body:     body,
	}
	dict, err := r.section("dictionary", header.DictOffset, header.DictSize)
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := json.Unmarshal(dict, &r.dict); err != nil {
		f.Close()
		return nil, fmt.Errorf("parsing dictionary: %w", err)
	}
	return r, nil
}

// section returns the bytes of a section given its absolute file offset, or
// an error when the section does not lie inside the body.
func (r *Reader) section(name string, offset, size int64) ([]byte, error) {
	start := offset - int64(HeaderSize)
	if start < 0 || size < 0 || start > int64(len(r.body)) || size > int64(len(r.body))-start {
		return nil, fmt.Errorf("invalid segment file: %s section [%d,+%d) outside body of %d bytes", name, offset, size, len(r.body))
	}
	return r.body[start : start+size], nil
}

// Load decodes the full commit: every posting list, the field lengths and the
// stored documents.
func (r *Reader) Load() (index.Snapshot, []store.Document, error) {
	postings, err := r.section("postings", r.header.PostOffset, r.header.PostSize)
	if err != nil {
		return index.Snapshot{}, nil, err
	}
	lengthsData, err := r.section("field lengths", r.header.LengthsOffset, r.header.LengthsSize)
	if err != nil {
		return index.Snapshot{}, nil, err
	}
	docsData, err := r.section("documents", r.header.DocsOffset, r.header.DocsSize)
	if err != nil {
		return index.Snapshot{}, nil, err
	}
	entries := make([]index.TermEntry, 0, len(r.dict))
	for _, d := range r.dict {
		end := d.PostOffset + int64(d.PostLen)
		if d.PostOffset < 0 || d.PostLen < 0 || end > int64(len(postings)) {
			return index.Snapshot{}, nil, fmt.Errorf("invalid segment file: postings of %s:%q at [%d,+%d) outside section of %d bytes",
				d.Field, d.Term, d.PostOffset, d.PostLen, len(postings))
		}
		var pl index.PostingList
		if err := json.Unmarshal(postings[d.PostOffset:end], &pl); err != nil {
			return index.Snapshot{}, nil, fmt.Errorf("parsing postings for %s:%q: %w", d.Field, d.Term, err)
		}
		entries = append(entries, index.TermEntry{Field: d.Field, Term: d.Term, Postings: pl})
	}
	var lengths []index.DocLengths
	if err := json.Unmarshal(lengthsData, &lengths); err != nil {
		return index.Snapshot{}, nil, fmt.Errorf("parsing field lengths: %w", err)
	}
	var docs []store.Document
	if err := json.Unmarshal(docsData, &docs); err != nil {
		return index.Snapshot{}, nil, fmt.Errorf("parsing documents: %w", err)
	}
	return index.Snapshot{Terms: entries, Lengths: lengths}, docs, nil
}

func (r *Reader) Generation() uint64 {
	return r.header.Generation
}

// CommitID identifies the content of this commit.
func (r *Reader) CommitID() uuid.UUID {
	return r.header.CommitID
}

func (r *Reader) Terms() int {
	return len(r.dict)
}

func (r *Reader) DocCount() uint32 {
	return r.header.DocCount
}

func (r *Reader) Close() error {
	return r.file.Close()
}
