// Package server implements the MCP (Model Context Protocol) server for
// drawing comparison.
//
// This package provides a JSON-RPC 2.0 server that exposes the comparison
// pipeline through the MCP protocol, so an MCP client can submit a revision
// pair, follow its pages as they finish and zoom into the detected changes.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses and notifications on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Jobs:
//   - drawdiff_compare: Submit two revisions (directories or path lists)
//   - drawdiff_status: Job state and per-page outcome
//   - drawdiff_wait: Block until a job is finished
//   - drawdiff_cancel: Stop dispatching pending pages
//   - drawdiff_retry: Resubmit failed pages as a new job
//
// Results:
//   - drawdiff_page: Diff record of one page, including change regions
//   - drawdiff_region_crop: Close-up PNG of one change region, or the whole
//     page with numbered regions
//
// # Notifications
//
// drawdiff_compare with notify=true sends one notifications/message per page
// as soon as that page finishes, in completion order. Notifications share
// stdout with responses; every message is written as one line under a lock.
// When wait=true is also given, the response follows the last notification.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: Additional error details (typically the Go error string)
package server
