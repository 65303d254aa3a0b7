// Package signaling relays WebRTC negotiation messages between the players
// and the single streamer of a lobby.
//
// Clients open a WebSocket, register once as a player or a streamer under a
// room code, and then exchange offers, answers and ICE candidates. The relay
// forwards those payloads without interpreting them; it only decides who
// receives them.
package signaling
