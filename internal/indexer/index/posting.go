package index

// Posting records that a term occurs Frequency times in one field of a
// document, at the given token positions.
type Posting struct {
	DocID     int64 `json:"d"`
	Frequency int   `json:"f"`
	Positions []int `json:"p"`
}

type PostingList []Posting

// TermEntry is one (field, term) group of postings, as persisted in a segment.
type TermEntry struct {
	Field    string      `json:"field"`
	Term     string      `json:"term"`
	Postings PostingList `json:"postings"`
}

// DocLengths is the number of tokens each indexed field of a document
// produced. Every indexed document has an entry, even when all its fields
// were empty.
type DocLengths struct {
	DocID  int64          `json:"d"`
	Fields map[string]int `json:"f"`
}

// Snapshot is a point-in-time copy of the whole inverted index.
type Snapshot struct {
	Terms   []TermEntry
	Lengths []DocLengths
}
