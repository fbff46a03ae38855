// Package phone connects Iroh Core to the phone line service.
//
// Stream holds the WebSocket event connection and retries forever with a
// fixed delay; Pipeline applies hook and digit events to the state machine
// in arrival order; Client wraps the REST endpoints used to ring the phone
// and play audio on the handset.
//
// Wiring:
//
//	pipeline := phone.NewPipeline(engine, phone.PipelineConfig{DTMFTimeout: 5 * time.Second})
//	stream := phone.NewStream(phone.StreamConfig{URL: cfg.Phone.API.WSURL}, pipeline.Handle)
//	go stream.Run(ctx)
package phone
