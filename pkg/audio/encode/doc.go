// ABOUTME: Packet encoders used by the generated and file sources
// ABOUTME: Turns 24-bit samples into the packets the codecs in decode expect
// Package encode turns 24-bit interleaved samples into source packets.
//
// PCM packets can carry any number of samples. Opus packets must hold exactly
// FrameSize samples per channel.
package encode
