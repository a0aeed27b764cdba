package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/indexer/store"
	"github.com/google/uuid"
)

// MagicBytes identifies a valid .spdx segment file.
const (
	MagicBytes    uint32 = 0x53504458
	FormatVersion uint32 = 3
	HeaderSize    int    = 128
	FooterSize    int    = 8
	Suffix               = ".spdx"
)

// headerChecksumAt is where the header's own crc32 is stored; it covers every
// header byte before it.
const headerChecksumAt = 112

// SegmentHeader is the fixed-size header written at the start of every
// segment. A segment holds one complete commit: postings, field lengths and
// stored documents, so a reader never sees postings without their documents.
// CommitID is random per commit and identifies the exact content, even
// across copies of an index directory.
type SegmentHeader struct {
	Magic         uint32
	Version       uint32
	TermCount     uint32
	DocCount      uint32
	Generation    uint64
	CreatedAt     int64
	PostOffset    int64
	PostSize      int64
	DictOffset    int64
	DictSize      int64
	LengthsOffset int64
	LengthsSize   int64
	DocsOffset    int64
	DocsSize      int64
	CommitID      uuid.UUID
}

// Info describes a segment that was written.
type Info struct {
	Name       string
	Generation uint64
	CommitID   uuid.UUID
}

// DictEntry maps a (field, term) key to its postings offset, length, and
// document frequency in the segment file.
type DictEntry struct {
	Field      string `json:"f"`
	Term       string `json:"t"`
	PostOffset int64  `json:"o"`
	PostLen    int    `json:"l"`
	DocFreq    int    `json:"d"`
}

// Name returns the file name of the segment for a generation. Names sort in
// generation order.
func Name(generation uint64) string {
	return fmt.Sprintf("seg_%020d%s", generation, Suffix)
}

// Writer serialises index snapshots into new .spdx segment files.
type Writer struct {
	dataDir string
}

// NewWriter creates a Writer that writes segments into the given directory.
func NewWriter(dataDir string) *Writer {
	return &Writer{dataDir: dataDir}
}

// Write atomically creates the segment for generation under a fresh commit
// id. It writes to a .tmp file, fsyncs, and renames on success.
func (w *Writer) Write(generation uint64, snap index.Snapshot, docs []store.Document) (Info, error) {
	segmentName := Name(generation)
	finalPath := filepath.Join(w.dataDir, segmentName)
	tmpPath := finalPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return Info{}, fmt.Errorf("creating temp segment file: %w", err)
	}
	defer f.Close()
	defer os.Remove(tmpPath)

	header := SegmentHeader{
		Magic:      MagicBytes,
		Version:    FormatVersion,
		TermCount:  uint32(len(snap.Terms)),
		DocCount:   uint32(len(docs)),
		Generation: generation,
		CreatedAt:  time.Now().Unix(),
		CommitID:   uuid.New(),
	}
	if _, err := f.Write(make([]byte, HeaderSize)); err != nil {
		return Info{}, fmt.Errorf("writing header placeholder: %w", err)
	}
	crc := crc32.NewIEEE()
	body := io.MultiWriter(f, crc)
	offset := int64(HeaderSize)

	header.PostOffset = offset
	dict := make([]DictEntry, 0, len(snap.Terms))
	for _, entry := range snap.Terms {
		postingsData, err := json.Marshal(entry.Postings)
		if err != nil {
			return Info{}, fmt.Errorf("marshaling postings for %s:%q: %w", entry.Field, entry.Term, err)
		}
		if _, err := body.Write(postingsData); err != nil {
			return Info{}, fmt.Errorf("writing postings for %s:%q: %w", entry.Field, entry.Term, err)
		}
		dict = append(dict, DictEntry{
			Field:      entry.Field,
			Term:       entry.Term,
			PostOffset: offset - header.PostOffset,
			PostLen:    len(postingsData),
			DocFreq:    len(entry.Postings),
		})
		offset += int64(len(postingsData))
	}
	header.PostSize = offset - header.PostOffset

	sections := []struct {
		name   string
		value  any
		offset *int64
		size   *int64
	}{
		{"dictionary", dict, &header.DictOffset, &header.DictSize},
		{"field lengths", snap.Lengths, &header.LengthsOffset, &header.LengthsSize},
		{"documents", docs, &header.DocsOffset, &header.DocsSize},
	}
	for _, s := range sections {
		data, err := json.Marshal(s.value)
		if err != nil {
			return Info{}, fmt.Errorf("marshaling %s: %w", s.name, err)
		}
		if _, err := body.Write(data); err != nil {
			return Info{}, fmt.Errorf("writing %s: %w", s.name, err)
		}
		*s.offset = offset
		*s.size = int64(len(data))
		offset += int64(len(data))
	}

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc.Sum32())
	binary.LittleEndian.PutUint32(footer[4:8], MagicBytes)
	if _, err := f.Write(footer); err != nil {
		return Info{}, fmt.Errorf("writing footer: %w", err)
	}
	if _, err := f.WriteAt(encodeHeader(header), 0); err != nil {
		return Info{}, fmt.Errorf("updating header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return Info{}, fmt.Errorf("syncing segment file: %w", err)
	}
	if err := f.Close(); err != nil {
		return Info{}, fmt.Errorf("closing segment file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return Info{}, fmt.Errorf("renaming segment file: %w", err)
	}
	syncDir(w.dataDir)
	return Info{Name: segmentName, Generation: generation, CommitID: header.CommitID}, nil
}

func encodeHeader(h SegmentHeader) []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	binary.LittleEndian.PutUint32(b[8:12], h.TermCount)
	binary.LittleEndian.PutUint32(b[12:16], h.DocCount)
	binary.LittleEndian.PutUint64(b[16:24], h.Generation)
	binary.LittleEndian.PutUint64(b[24:32], uint64(h.CreatedAt))
	binary.LittleEndian.PutUint64(b[32:40], uint64(h.PostOffset))
	binary.LittleEndian.PutUint64(b[40:48], uint64(h.PostSize))
	binary.LittleEndian.PutUint64(b[48:56], uint64(h.DictOffset))
	binary.LittleEndian.PutUint64(b[56:64], uint64(h.DictSize))
	binary.LittleEndian.PutUint64(b[64:72], uint64(h.LengthsOffset))
	binary.LittleEndian.PutUint64(b[72:80], uint64(h.LengthsSize))
	binary.LittleEndian.PutUint64(b[80:88], uint64(h.DocsOffset))
	binary.LittleEndian.PutUint64(b[88:96], uint64(h.DocsSize))
	copy(b[96:112], h.CommitID[:])
	binary.LittleEndian.PutUint32(b[headerChecksumAt:], crc32.ChecksumIEEE(b[:headerChecksumAt]))
	return b
}

// decodeHeader rejects a header whose checksum does not match before any of
// its offsets are trusted.
func decodeHeader(b []byte) (SegmentHeader, error) {
	if want, got := binary.LittleEndian.Uint32(b[headerChecksumAt:]), crc32.ChecksumIEEE(b[:headerChecksumAt]); want != got {
		return SegmentHeader{}, fmt.Errorf("segment header checksum mismatch: want %08x, got %08x", want, got)
	}
	h := SegmentHeader{
		Magic:         binary.LittleEndian.Uint32(b[0:4]),
		Version:       binary.LittleEndian.Uint32(b[4:8]),
		TermCount:     binary.LittleEndian.Uint32(b[8:12]),
		DocCount:      binary.LittleEndian.Uint32(b[12:16]),
		Generation:    binary.LittleEndian.Uint64(b[16:24]),
		CreatedAt:     int64(binary.LittleEndian.Uint64(b[24:32])),
		PostOffset:    int64(binary.LittleEndian.Uint64(b[32:40])),
		PostSize:      int64(binary.LittleEndian.Uint64(b[40:48])),
		DictOffset:    int64(binary.LittleEndian.Uint64(b[48:56])),
		DictSize:      int64(binary.LittleEndian.Uint64(b[56:64])),
		LengthsOffset: int64(binary.LittleEndian.Uint64(b[64:72])),
		LengthsSize:   int64(binary.LittleEndian.Uint64(b[72:80])),
		DocsOffset:    int64(binary.LittleEndian.Uint64(b[80:88])),
		DocsSize:      int64(binary.LittleEndian.Uint64(b[88:96])),
	}
	copy(h.CommitID[:], b[96:112])
	return h, nil
}

// syncDir fsyncs the directory after a rename. Errors are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer d.Close()
	_ = d.Sync()
}
