package dashboard

// PubSub is the room broadcast capability a dashboard publishes through.
// *pubsub.Namespace satisfies it.
type PubSub interface {
	OnConnect(fn func(conn string))
	Join(conn, room string)
	Emit(room, event string, data any)
}
