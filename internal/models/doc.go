// Package models defines domain entities and persistence interfaces for the spinsync engine.
//
// The package contains two categories of types:
//
// 1. Data Transfer Objects (DTOs): Lightweight structs passed between components
//   - [RawSpin] : One play event as delivered by the spin source, untrusted free text
//   - [Spin] : A canonical play event after normalization
//   - [TrackList] : The deduplicated, broadcast-ordered spin list for one show
//   - [Candidate] : One catalog search result considered by the resolver
//   - [Playlist] : Remote playlist metadata
//
// 2. Persistent Entities: Database-backed models with full lifecycle management
//   - [CachedTrack] : A catalog resolution outcome with its TTL timestamp
//   - [PlaylistState] : The reconciliation cursor (playlist id + watermark) per show
//   - [SyncRun] : Journal rows recording each engine run and its counts
//
// All persistent entities implement the Model interface providing ID generation, timestamps, validation, and soft delete support.
// The Repository[T] interface defines standard CRUD operations for database access.
package models
