// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/poiesic/clinrag/ai"
	"github.com/poiesic/clinrag/ingestion"
	"github.com/poiesic/clinrag/reembed"
	"github.com/poiesic/clinrag/search"
	"github.com/urfave/cli/v2"
)

func main() {
	// Environment files fill in variables that are not already set.
	if path := os.Getenv("CLINRAG_ENV_FILE"); path != "" {
		if err := godotenv.Load(path); err != nil {
			log.Fatal(err)
		}
	} else {
		_ = godotenv.Load("env")
		_ = godotenv.Load()
	}

	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	defaults := ai.DefaultConfig()

	return &cli.App{
		Name:  "clinrag",
		Usage: "Clinical document retrieval and coding",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory",
				Value:   "clinrag.db",
				EnvVars: []string{"CLINRAG_DB"},
			},
			&cli.StringFlag{
				Name:    "postgres",
				Usage:   "PostgreSQL DSN; when set, used instead of --db",
				EnvVars: []string{"CLINRAG_POSTGRES_DSN"},
			},
			&cli.StringFlag{
				Name:    "base-url",
				Usage:   "OpenAI-compatible API base URL",
				Value:   defaults.BaseURL,
				EnvVars: []string{"OPENAI_BASE_URL"},
			},
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "API key for the model service",
				EnvVars: []string{"OPENAI_API_KEY"},
			},
			&cli.StringFlag{
				Name:  "chat-model",
				Usage: "Model for answers, notes and summaries",
				Value: defaults.ChatModel,
			},
			&cli.StringFlag{
				Name:  "hydration-model",
				Usage: "Model for segment contexts",
				Value: defaults.HydrationModel,
			},
			&cli.StringFlag{
				Name:  "embedding-model",
				Usage: "Embedding model name",
				Value: defaults.EmbeddingModel,
			},
			&cli.IntFlag{
				Name:  "embedding-dims",
				Usage: "Embedding vector dimensions",
				Value: defaults.EmbeddingDimensions,
			},
			&cli.IntFlag{
				Name:    "max-tokens-per-minute",
				Usage:   "Token budget per rolling minute",
				Value:   defaults.MaxTokensPerMinute,
				EnvVars: []string{"OPENAI_MAX_TOKENS_MIN"},
			},
			&cli.IntFlag{
				Name:    "max-requests-per-minute",
				Usage:   "Request budget per rolling minute",
				Value:   defaults.MaxRequestsPerMinute,
				EnvVars: []string{"OPENAI_MAX_REQ_MIN"},
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "worker",
				Usage:  "Chunk and embed queued documents until interrupted",
				Action: workerCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of concurrent workers",
						Value: 1,
					},
					&cli.IntFlag{
						Name:  "pool-size",
						Usage: "Concurrent hydration requests per worker (0 for half the CPUs)",
					},
					&cli.IntFlag{
						Name:  "chunk-size",
						Usage: "Segment length in characters",
						Value: ingestion.DefaultChunkSize,
					},
					&cli.IntFlag{
						Name:  "overlap",
						Usage: "Characters shared by consecutive segments",
						Value: ingestion.DefaultChunkOverlap,
					},
					&cli.BoolFlag{
						Name:  "reaper",
						Usage: "Requeue documents stuck in progress",
					},
					&cli.DurationFlag{
						Name:  "stale-after",
						Usage: "Claim age after which the reaper requeues a document",
						Value: ingestion.DefaultStaleAfter,
					},
				},
			},
			{
				Name:      "ingest",
				Usage:     "Queue documents for chunking",
				ArgsUsage: "[file ...]",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "title",
						Usage: "Document title (defaults to the file name; required for stdin)",
					},
				},
			},
			{
				Name:   "documents",
				Usage:  "List documents",
				Action: documentsCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "stage",
						Usage: "Only list documents in this stage",
					},
				},
			},
			{
				Name:      "requeue",
				Usage:     "Return failed documents to the queue",
				ArgsUsage: "id [id ...]",
				Action:    requeueCommand,
			},
			{
				Name:   "reap",
				Usage:  "Requeue documents stuck in progress",
				Action: reapCommand,
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "older-than",
						Usage: "Minimum claim age",
						Value: ingestion.DefaultStaleAfter,
					},
				},
			},
			{
				Name:      "ask",
				Usage:     "Answer a question from the ingested documents",
				ArgsUsage: "question",
				Action:    askCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "k",
						Usage: "Number of segments to retrieve",
						Value: search.DefaultK,
					},
				},
			},
			{
				Name:      "lookup",
				Usage:     "Look up a clinical code",
				ArgsUsage: "term",
				Action:    lookupCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "system",
						Usage:    "Code system (ICD, RXNORM)",
						Required: true,
					},
				},
			},
			{
				Name:      "note",
				Usage:     "Build a coded structured note from a clinical note",
				ArgsUsage: "[file]",
				Action:    noteCommand,
			},
			{
				Name:      "summarize",
				Usage:     "Summarize a document",
				ArgsUsage: "[file]",
				Action:    summarizeCommand,
			},
			{
				Name:   "reembed",
				Usage:  "Recompute the embeddings of all segments",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of segments to process in each batch",
						Value: reembed.DefaultBatchSize,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N segments",
						Value: 100,
					},
				},
			},
		},
	}
}
