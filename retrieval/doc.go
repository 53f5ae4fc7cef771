// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package retrieval supplies context documents for a consultation.

Retriever is the only contract the workflow depends on. MemoryRetriever
serves tests and the offline CLI; Store persists documents through gorm
(PostgreSQL, MySQL or SQLite) and ranks LIKE-filtered candidates by
keyword overlap, with title matches weighted double.
*/
package retrieval
