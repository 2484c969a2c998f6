// Package vectorstore stores company profiles as embeddings and answers
// similarity queries over them.
//
// Two providers implement Store:
//   - ChromemStore: chromem-go embedded database persisted to disk (default)
//   - QdrantStore: Qdrant over native gRPC, with retries and a circuit breaker
//
// Both keep a single collection ("theodore_companies" unless configured).
// Documents are keyed by ID, so indexing the same company twice replaces the
// earlier entry.
//
// # Usage
//
//	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
//	    Path:       "/data/theodore",
//	    VectorSize: 1536,
//	}, embedder, logger)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	_, err = store.AddDocuments(ctx, []vectorstore.Document{{
//	    ID:       "stripe.com",
//	    Content:  "Stripe. Online payments infrastructure for internet businesses.",
//	    Metadata: map[string]interface{}{"industry": "fintech"},
//	}})
//
//	results, err := store.SearchWithFilters(ctx, "payments api", 10,
//	    map[string]interface{}{"industry": "fintech"})
//
// # Security
//
// Collection names must match ^[a-z0-9_]{1,64}$. Qdrant queries are limited
// to 10,000 characters and 10,000 results.
package vectorstore
