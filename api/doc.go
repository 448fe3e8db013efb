// Package api documents the VoiceRelay HTTP and WebSocket surface.
//
// Handlers live in api/handlers; this package only carries the API overview.
//
// # API Overview
//
// VoiceRelay exposes:
//   - A WebSocket voice session at /ws/audio
//   - A one-shot voice question endpoint at POST /api/voice-chat
//   - Liveness, readiness and version endpoints
//
// Prometheus metrics are served on a separate port at /metrics.
//
// # WebSocket Protocol
//
// Binary frames from the client carry encoded microphone audio. Text frames
// carry JSON control messages:
//
//	{"type": "start", "message": "optional greeting"}
//	{"type": "done"}
//	{"type": "cleanup"}
//
// The server answers with binary audio frames and JSON event messages:
//
//	greeting, greeting_end, user_speaking, transcript, response,
//	interrupted, agent_idle, error
//
// # Voice Chat
//
// POST /api/voice-chat accepts multipart/form-data with a "file" field and an
// optional "conversation_id" field. A successful response is an audio
// attachment whose Content-Type and file extension follow the container format
// reported by the TTS provider (audio/mpeg for the default mp3 output), with the
// X-Conversation-ID header set. Failures use the common
// JSON envelope:
//
//	{"success": false, "error": {"code": "TRANSCRIPTION_FAILED", "message": "..."}}
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8000
package api
