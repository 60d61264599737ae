// Package livecam manages the lifecycle of a camera live-streaming session
// whose engine is expensive to build.
//
// A Manager is cheap to create: it allocates a preview surface and
// configures the audio session, nothing more. The engine is built on the
// first StartPreview or StartStreaming, and every caller that arrives while
// that construction runs shares it. Configuration set before the engine
// exists is staged and applied in full before the session reports Ready.
//
// # Architecture
//
//	caller -> Manager --(prepare queue)--> DeviceCache --(discovery queue)--> DeviceProvider
//	                  \--(engine queue)--> Engine --(EventBridge)--> EventObserver
//
// Engines require single-goroutine affinity: the Manager only calls them
// from its engine queue. Device enumeration runs on its own queue and is
// memoized until invalidated.
//
// # States
//
//	Uninitialized -> Initializing -> Ready <-> Streaming
//	Initializing -> Uninitialized (construction failed)
//	any -> Disposed
//
// # Engines
//
// RTMPEngine is the bundled engine. It captures from a VideoSource (a
// synthetic TestPatternSource by default) into the preview Surface and
// publishes over RTMP. Zoom is applied digitally to preview frames.
// Production engines implement the Engine interface.
package livecam
