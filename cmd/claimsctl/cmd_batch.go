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
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/claimsgate/services/claims/datatypes"
	"github.com/AleutianAI/claimsgate/services/claims/pipeline"
)

// Batches can take a while: every claim triggers an LLM call.
var batchClient = &http.Client{Timeout: 30 * time.Minute}

func runBatchSubmit(cmd *cobra.Command, args []string) {
	if tenantID == "" {
		fmt.Fprintln(os.Stderr, "Error: --tenant is required")
		os.Exit(1)
	}

	raw, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: could not read %s: %v\n", args[0], err)
		os.Exit(1)
	}

	var rows []datatypes.RawClaimRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s is not a JSON array of claim rows: %v\n", args[0], err)
		os.Exit(1)
	}

	postBody, err := json.Marshal(map[string]any{
		"tenant_id": tenantID,
		"claims":    rows,
	})
	if err != nil {
		logger.Error("could not build the request", "error", err)
		os.Exit(1)
	}

	logger.Info("submitting batch", "tenant", tenantID, "rows", len(rows))
	start := time.Now()
	resp, err := batchClient.Post(serviceURL+"/v1/batches", "application/json",
		bytes.NewBuffer(postBody))
	if err != nil {
		logger.Error("failed to reach the claims service", "error", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Error: service returned %d: %s\n", resp.StatusCode, body)
		os.Exit(1)
	}

	var result pipeline.BatchResult
	if err := json.Unmarshal(body, &result); err != nil {
		fmt.Fprintf(os.Stderr, "Error: could not parse the batch response: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Batch %s processed in %s\n", result.BatchID, time.Since(start).Round(time.Millisecond))
	fmt.Printf("  Total:          %d\n", result.Summary.Total)
	fmt.Printf("  Validated:      %d\n", result.Summary.Validated)
	fmt.Printf("  Not validated:  %d\n", result.Summary.NotValidated)
	fmt.Printf("  Errored:        %d\n", result.Summary.Errored)
	fmt.Printf("  Paid total:     %.2f\n", result.Summary.TotalPaid)
	fmt.Printf("  Paid validated: %.2f\n", result.Summary.ValidatedPaid)
	fmt.Printf("  Paid rejected:  %.2f\n", result.Summary.RejectedPaid)

	for _, r := range result.Results {
		if r.Status == datatypes.StatusValidated {
			continue
		}
		fmt.Printf("  %s: %s (%s)\n", r.ClaimID, r.Status, r.ErrorType)
		for _, f := range r.Findings {
			fmt.Printf("    - [%s] %s\n", f.RuleID, f.Detail)
		}
	}
}

func runBatchGet(cmd *cobra.Command, args []string) {
	if tenantID == "" {
		fmt.Fprintln(os.Stderr, "Error: --tenant is required")
		os.Exit(1)
	}

	endpoint := fmt.Sprintf("%s/v1/batches/%s/%s", serviceURL, tenantID, args[0])
	resp, err := batchClient.Get(endpoint)
	if err != nil {
		logger.Error("failed to reach the claims service", "error", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Error: service returned %d: %s\n", resp.StatusCode, body)
		os.Exit(1)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		fmt.Println(string(body))
		return
	}
	fmt.Println(pretty.String())
}
