// Package webchat serves the travel assistant over HTTP and websockets.
//
// Ownership model:
//   - ChatService owns responder calls. Synchronous messages are answered inline;
//     streaming runs execute in the background and publish one frame per emission
//     on the reply topic.
//   - StreamHub consumes the reply topic and fans frames out to the websocket
//     connections of the frame's session, in publish order.
//   - Router mounts the UI, health, agent card, chat, websocket, auth-test and
//     optional debug routes behind logging, CORS and tracing middleware.
//   - Server runs the router with graceful shutdown on SIGINT/SIGTERM.
package webchat
