// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package vectorstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/AleutianAI/claimsgate/services/claims/datatypes"
)

const (
	chunkSize    = 1000
	chunkOverlap = 150
)

// markdownSeparators keep headings and list items intact where possible.
var markdownSeparators = []string{"\n## ", "\n### ", "\n\n", "\n", " ", ""}

var defaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// splitterForSource picks a splitter by document extension. Rule documents
// are usually markdown or plain text policy excerpts.
func splitterForSource(source string) textsplitter.TextSplitter {
	switch filepath.Ext(source) {
	case ".md":
		return textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators(markdownSeparators),
		)
	default:
		return textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators(defaultSeparators),
		)
	}
}

// ChunkDocument splits a rule document into RuleChunks ready for embedding.
// Vectors are left nil; the ingestion path fills them in.
//
// # Inputs
//
//   - tenantID: Owning tenant, stamped on every chunk.
//   - ruleType: technical or medical.
//   - source: Document name, used both for splitter selection and chunk
//     provenance.
//   - content: The full document text.
//
// # Outputs
//
//   - []RuleChunk: In document order, with content hashes set. Empty when
//     the document has no splittable content.
//   - error: Splitter failure.
func ChunkDocument(tenantID string, ruleType datatypes.RuleType, source, content string) ([]RuleChunk, error) {
	pieces, err := splitterForSource(source).SplitText(content)
	if err != nil {
		return nil, fmt.Errorf("split document %s: %w", source, err)
	}

	chunks := make([]RuleChunk, 0, len(pieces))
	for i, piece := range pieces {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		chunks = append(chunks, RuleChunk{
			TenantID:    tenantID,
			RuleType:    ruleType,
			ChunkIndex:  i,
			Content:     piece,
			ContentHash: HashContent(piece),
			Source:      source,
		})
	}
	return chunks, nil
}

// HashContent returns the hex SHA-256 of the full chunk content. The hash is
// the dedup identity for retrieval, so it covers every byte of the chunk.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
