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
)

var ruleClient = &http.Client{Timeout: 30 * time.Second}

func rulesEndpoint() (string, bool) {
	if tenantID == "" {
		fmt.Fprintln(os.Stderr, "Error: --tenant is required")
		return "", false
	}
	if ruleType != "technical" && ruleType != "medical" {
		fmt.Fprintln(os.Stderr, "Error: --type must be technical or medical")
		return "", false
	}
	return fmt.Sprintf("%s/v1/rules/%s/%s", serviceURL, tenantID, ruleType), true
}

func runRulesGet(cmd *cobra.Command, args []string) {
	endpoint, ok := rulesEndpoint()
	if !ok {
		os.Exit(1)
	}

	resp, err := ruleClient.Get(endpoint)
	if err != nil {
		logger.Error("failed to reach the claims service", "url", endpoint, "error", err)
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

func runRulesPut(cmd *cobra.Command, args []string) {
	endpoint, ok := rulesEndpoint()
	if !ok {
		os.Exit(1)
	}

	raw, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: could not read %s: %v\n", args[0], err)
		os.Exit(1)
	}

	req, err := http.NewRequest(http.MethodPut, endpoint, bytes.NewReader(raw))
	if err != nil {
		logger.Error("failed to build the request", "error", err)
		os.Exit(1)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ruleClient.Do(req)
	if err != nil {
		logger.Error("failed to reach the claims service", "url", endpoint, "error", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Error: service returned %d: %s\n", resp.StatusCode, body)
		os.Exit(1)
	}
	logger.Info("rule set uploaded", "tenant", tenantID, "type", ruleType, "file", args[0])
	fmt.Println(string(body))
}

func runRulesInvalidate(cmd *cobra.Command, args []string) {
	endpoint, ok := rulesEndpoint()
	if !ok {
		os.Exit(1)
	}

	resp, err := ruleClient.Post(endpoint+"/invalidate", "application/json", nil)
	if err != nil {
		logger.Error("failed to reach the claims service", "url", endpoint, "error", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Error: service returned %d: %s\n", resp.StatusCode, body)
		os.Exit(1)
	}
	fmt.Printf("Invalidated cached %s rules for tenant %s\n", ruleType, tenantID)
}
