// Package mcp exposes company discovery as MCP tools.
//
// Tools:
//   - discover_similar_companies runs a discovery and returns the ranked result
//   - list_search_backends reports backend health
//   - check_search_backends probes unhealthy backends now
//   - index_companies stores company profiles in the company database
//
// The server runs on stdio (theodore mcp) or over streamable HTTP mounted at
// /mcp on the REST server.
package mcp
