// Package stage defines the object-store layout: the ordered pipeline
// prefixes, key derivation helpers, and the identifiers derived from keys.
package stage

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"path"
	"strings"
	"time"
)

// Pipeline prefixes. Writing an object under a prefix is what advances a
// PDF through the pipeline; there is no separate workflow state.
const (
	Pending           = "Stage1_Pending/"
	Standard          = "Stage1_Standard/"
	LargeFile         = "Stage1_LargeFile/"
	LargeFileChunks   = "Stage1_LargeFile_Chunks/"
	LargeFileResults  = "Stage1_LargeFile_Results/"
	ParsedInputs      = "Stage2_ParsedInputs/"
	ParsedOutputs     = "Stage3_ParsedOutputs/"
	EnrichedOutputs   = "Stage4_EnrichedOutputs/"
	Overrides         = "Stage5_Overrides/"
	PreEntrata        = "Stage6_PreEntrata/"
	PostEntrata       = "Stage7_PostEntrata/"
	UBIAssigned       = "Stage8_UBI_Assigned/"
	HistoricalArchive = "Stage99_HistoricalArchive/"
	Failed            = "Failed/"
	EnrichmentExports = "Enrichment/exports/"
)

// allowedPrefixes is the prefix allow-list enforced on any key accepted
// from the review surface. Writes outside these are rejected.
var allowedPrefixes = []string{
	Pending, Standard, LargeFile, LargeFileChunks, LargeFileResults,
	ParsedInputs, ParsedOutputs, EnrichedOutputs, Overrides,
	PreEntrata, PostEntrata, UBIAssigned, HistoricalArchive,
	Failed, EnrichmentExports,
}

// Allowed reports whether key falls under a reserved pipeline prefix and
// contains no traversal segments.
func Allowed(key string) bool {
	if strings.Contains(key, "..") || strings.HasPrefix(key, "/") {
		return false
	}
	for _, p := range allowedPrefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

// PDFID identifies a PDF across the pipeline: SHA1 of its final
// object-store key. It depends only on the archived key, never on
// transient staging keys.
func PDFID(key string) string {
	sum := sha1.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

// LineID identifies one extracted row.
func LineID(pdfID string, index int) string {
	return fmt.Sprintf("%s#%d", pdfID, index)
}

// Basename returns the file name portion of a key.
func Basename(key string) string { return path.Base(key) }

// Stem returns the file name without its extension.
func Stem(key string) string {
	base := path.Base(key)
	return strings.TrimSuffix(base, path.Ext(base))
}

// Rebase moves a key from one prefix to another, keeping the base name.
func Rebase(key, toPrefix string) string {
	return toPrefix + path.Base(key)
}

// Sidecar kinds carried alongside a PDF. Consumers derive the adjacent
// key; they never list directories to discover sidecars.
const (
	SidecarNotes  = ".notes.json"
	SidecarRework = ".rework.json"
	SidecarError  = ".error.json"
	SidecarPosted = ".posted.json"
)

// SidecarKey derives the sidecar key adjacent to a PDF key:
// "prefix/name.pdf" -> "prefix/name.notes.json".
func SidecarKey(pdfKey, kind string) string {
	ext := path.Ext(pdfKey)
	return strings.TrimSuffix(pdfKey, ext) + kind
}

// SidecarKinds lists the reviewer-written sidecars the router must carry
// forward when it moves a PDF between prefixes.
var SidecarKinds = []string{SidecarNotes, SidecarRework}

// LargeFileMarker in a file name means the PDF already went through a
// failure promotion; a second parser failure parks it instead of looping.
const LargeFileMarker = "_LARGEFILE_"

// MarkLargeFile inserts the promotion marker before the extension.
func MarkLargeFile(name string) string {
	ext := path.Ext(name)
	return strings.TrimSuffix(name, ext) + LargeFileMarker + ext
}

// IsMarkedLargeFile reports whether the name carries the promotion marker.
func IsMarkedLargeFile(name string) bool {
	return strings.Contains(name, LargeFileMarker)
}

// ParsedOutputKey builds the Stage 3 key for a source PDF using the
// parser's UTC date: Stage3_ParsedOutputs/yyyy=Y/mm=M/dd=D/source=s3/<stem>.jsonl.
func ParsedOutputKey(pdfKey string, now time.Time) string {
	now = now.UTC()
	return fmt.Sprintf("%syyyy=%04d/mm=%02d/dd=%02d/source=s3/%s.jsonl",
		ParsedOutputs, now.Year(), int(now.Month()), now.Day(), Stem(pdfKey))
}

// EnrichedOutputKey mirrors a Stage 3 key into Stage 4.
func EnrichedOutputKey(parsedKey string) string {
	return EnrichedOutputs + strings.TrimPrefix(parsedKey, ParsedOutputs)
}

// ChunkKey returns the chunk PDF key for a job.
func ChunkKey(jobID string, chunkNum int) string {
	return fmt.Sprintf("%s%s/chunk_%03d.pdf", LargeFileChunks, jobID, chunkNum)
}

// ChunkResultKey returns the per-chunk result key for a job.
func ChunkResultKey(jobID string, chunkNum int) string {
	return fmt.Sprintf("%s%s/chunk_%03d.json", LargeFileResults, jobID, chunkNum)
}

// JobIDFromChunkKey extracts the job id from a chunk or chunk-result key.
func JobIDFromChunkKey(key string) (string, bool) {
	for _, prefix := range []string{LargeFileChunks, LargeFileResults} {
		if strings.HasPrefix(key, prefix) {
			rest := strings.TrimPrefix(key, prefix)
			if i := strings.IndexByte(rest, '/'); i > 0 {
				return rest[:i], true
			}
		}
	}
	return "", false
}

// ChunkNumFromKey extracts the chunk number from chunk_NNN.pdf / .json.
func ChunkNumFromKey(key string) (int, bool) {
	base := Stem(key)
	if !strings.HasPrefix(base, "chunk_") {
		return 0, false
	}
	var n int
	if _, err := fmt.Sscanf(base, "chunk_%d", &n); err != nil {
		return 0, false
	}
	return n, true
}
