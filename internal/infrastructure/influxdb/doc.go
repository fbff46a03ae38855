// Package influxdb records Iroh activity as time series in InfluxDB v2.
//
// Measurements:
//   - phone_events: tag type, field digit and accepted
//   - dtmf_transitions: tags from, to, reason
//   - dtmf_handlers: tags state, handler, outcome; field duration_ms
//   - timer_events: tags event, timer_id; fields name, remaining_s
//
// Writes are non-blocking and batched per influxdb.batch_size and
// influxdb.flush_interval; asynchronous write errors reach the SetOnError
// callback. A disabled or unreachable server never blocks the phone line.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.WriteTransition("initial", "temperature", "handler", time.Now())
package influxdb
