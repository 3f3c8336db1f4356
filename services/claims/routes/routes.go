// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/claimsgate/services/claims/handlers"
	"github.com/AleutianAI/claimsgate/services/claims/persistence"
	"github.com/AleutianAI/claimsgate/services/claims/pipeline"
	"github.com/AleutianAI/claimsgate/services/claims/rules"
	"github.com/AleutianAI/claimsgate/services/claims/vectorstore"
)

// Deps carries the collaborators the routes need. Index and Embedder may be
// nil in lightweight mode; the document ingestion route is then not
// registered at all.
type Deps struct {
	RuleStore    *rules.Store
	Orchestrator *pipeline.Orchestrator
	ResultStore  persistence.Store
	Index        handlers.ChunkWriter
	Embedder     vectorstore.Embedder
}

// SetupRoutes registers all HTTP routes on the router.
func SetupRoutes(router *gin.Engine, deps Deps) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/batches", handlers.SubmitBatch(deps.Orchestrator))

		if deps.Index != nil && deps.Embedder != nil {
			v1.POST("/documents", handlers.IngestRuleDocument(deps.Index, deps.Embedder))
		}

		if deps.ResultStore != nil {
			v1.GET("/results/:tenant/:claim", handlers.GetResult(deps.ResultStore))
			v1.GET("/batches/:tenant/:batch", handlers.GetBatch(deps.ResultStore))
		}

		// Rule configuration routes
		ruleAdmin := v1.Group("/rules")
		{
			ruleAdmin.GET("/:tenant/:type", handlers.GetRuleSet(deps.RuleStore))
			ruleAdmin.PUT("/:tenant/:type", handlers.PutRuleSet(deps.RuleStore))
			ruleAdmin.POST("/:tenant/:type/invalidate", handlers.InvalidateRuleSet(deps.RuleStore))
		}
	}
}
