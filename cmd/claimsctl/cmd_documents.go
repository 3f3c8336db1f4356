// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
)

// ingestOne uploads a single rule document. withReplace clears the tenant's
// existing chunks for this rule type before the insert.
func ingestOne(client *http.Client, id int, file string, withReplace bool) {
	fmt.Printf("[Worker %d] Ingesting: %s\n", id, file)
	content, err := os.ReadFile(file)
	if err != nil {
		logger.Error("could not read file", "worker", id, "file", file, "error", err)
		return
	}

	postBody, err := json.Marshal(map[string]any{
		"tenant_id": tenantID,
		"rule_type": ruleType,
		"source":    filepath.Base(file),
		"content":   string(content),
		"replace":   withReplace,
	})
	if err != nil {
		logger.Error("could not build the request", "worker", id, "file", file, "error", err)
		return
	}

	resp, err := client.Post(serviceURL+"/v1/documents", "application/json",
		bytes.NewBuffer(postBody))
	if err != nil {
		logger.Error("failed to send document to the claims service",
			"worker", id, "file", file, "error", err)
		return
	}

	bodyBytes, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		logger.Error("claims service rejected document", "worker", id,
			"file", file, "status", resp.StatusCode, "body", string(bodyBytes))
		return
	}
	var ingestResp map[string]interface{}
	if err := json.Unmarshal(bodyBytes, &ingestResp); err == nil {
		fmt.Printf("[Worker %d] Ingested %s (chunks: %.0f)\n", id,
			file, ingestResp["chunks_inserted"])
	} else {
		fmt.Printf("[Worker %d] Ingested %s (response unclear)\n", id, file)
	}
}

// documentWorker uploads rule documents from the jobs channel one at a time.
func documentWorker(id int, wg *sync.WaitGroup, jobs <-chan string) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Minute}
	for file := range jobs {
		ingestOne(client, id, file, false)
	}
}

// collectDocuments expands the path arguments into a flat list of text files.
func collectDocuments(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("cannot stat %s: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			switch strings.ToLower(filepath.Ext(path)) {
			case ".md", ".txt", ".json":
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", p, err)
		}
	}
	return files, nil
}

func runIngest(cmd *cobra.Command, args []string) {
	if tenantID == "" {
		fmt.Fprintln(os.Stderr, "Error: --tenant is required")
		os.Exit(1)
	}

	files, err := collectDocuments(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "No ingestable files found (.md, .txt, .json)")
		os.Exit(1)
	}

	total := len(files)
	logger.Info("starting document ingestion", "tenant", tenantID,
		"rule_type", ruleType, "files", total, "workers", workers)

	// The replacing upload must land before the parallel ones, otherwise it
	// would delete chunks another worker just wrote.
	if replace {
		ingestOne(&http.Client{Timeout: 5 * time.Minute}, 0, files[0], true)
		files = files[1:]
	}

	jobs := make(chan string, len(files))
	var wg sync.WaitGroup
	for i := 1; i <= workers; i++ {
		wg.Add(1)
		go documentWorker(i, &wg, jobs)
	}
	for _, f := range files {
		jobs <- f
	}
	close(jobs)
	wg.Wait()

	fmt.Printf("Done. Processed %d file(s) for tenant %s.\n", total, tenantID)
}
