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
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/claimsgate/pkg/logging"
)

// --- Global Command Variables ---
var (
	serviceURL string
	tenantID   string
	ruleType   string
	replace    bool
	workers    int

	logger *logging.Logger

	rootCmd = &cobra.Command{
		Use:   "claimsctl",
		Short: "A cli to manage the claims validation service",
		Long: `Claimsctl manages tenant rule configurations, ingests rule
				documents into the retrieval index, and submits claim batches
				for validation.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if serviceURL == "" {
				serviceURL = os.Getenv("CLAIMSGATE_URL")
			}
			if serviceURL == "" {
				serviceURL = "http://localhost:8080"
			}
			logger = logging.New(logging.Config{
				Level:   logging.LevelInfo,
				LogDir:  "~/.claimsgate/logs",
				Service: "claimsctl",
			})
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Close()
			}
		},
	}

	// --- Rules ---
	rulesCmd = &cobra.Command{
		Use:   "rules",
		Short: "Manage tenant rule configurations",
	}
	rulesGetCmd = &cobra.Command{
		Use:   "get",
		Short: "Fetch the rule document a tenant currently resolves to",
		Run:   runRulesGet, // Defined in cmd_rules.go
	}
	rulesPutCmd = &cobra.Command{
		Use:   "put [file]",
		Short: "Upload a rule document for a tenant",
		Args:  cobra.ExactArgs(1),
		Run:   runRulesPut, // Defined in cmd_rules.go
	}
	rulesInvalidateCmd = &cobra.Command{
		Use:   "invalidate",
		Short: "Drop the cached rule set so the next read reloads from source",
		Run:   runRulesInvalidate, // Defined in cmd_rules.go
	}

	// --- Documents ---
	ingestCmd = &cobra.Command{
		Use:   "ingest [file or directory path...]",
		Short: "Ingest rule documents into the retrieval index",
		Args:  cobra.MinimumNArgs(1),
		Run:   runIngest, // Defined in cmd_documents.go
	}

	// --- Batches ---
	batchCmd = &cobra.Command{
		Use:   "batch",
		Short: "Submit and inspect claim batches",
	}
	batchSubmitCmd = &cobra.Command{
		Use:   "submit [file]",
		Short: "Submit a JSON file of claim rows for validation",
		Args:  cobra.ExactArgs(1),
		Run:   runBatchSubmit, // Defined in cmd_batch.go
	}
	batchGetCmd = &cobra.Command{
		Use:   "get [batch-id]",
		Short: "Fetch a processed batch with its per-claim results",
		Args:  cobra.ExactArgs(1),
		Run:   runBatchGet, // Defined in cmd_batch.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serviceURL, "url", "",
		"Claims service URL (defaults to $CLAIMSGATE_URL, then http://localhost:8080)")
	rootCmd.PersistentFlags().StringVarP(&tenantID, "tenant", "t", "",
		"Tenant the operation applies to")

	rulesCmd.PersistentFlags().StringVar(&ruleType, "type", "technical",
		"Rule type: technical or medical")
	rulesCmd.AddCommand(rulesGetCmd, rulesPutCmd, rulesInvalidateCmd)

	ingestCmd.Flags().StringVar(&ruleType, "type", "medical",
		"Rule type the documents belong to: technical or medical")
	ingestCmd.Flags().BoolVar(&replace, "replace", false,
		"Drop the tenant's existing chunks for this rule type before ingesting")
	ingestCmd.Flags().IntVar(&workers, "workers", 4,
		"Number of concurrent upload workers")

	batchCmd.AddCommand(batchSubmitCmd, batchGetCmd)

	rootCmd.AddCommand(rulesCmd, ingestCmd, batchCmd)
}
