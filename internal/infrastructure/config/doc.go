// Package config loads the Iroh Core configuration.
//
// Values are layered: built-in defaults, then the YAML file, then .env and
// .env.local in the working directory, then IROH_* environment variables.
// Validate reports every problem at once so a bad file is fixed in one pass.
//
// Keep the Home Assistant token, the MQTT password and the InfluxDB token
// out of the YAML file; set IROH_HA_TOKEN, IROH_MQTT_PASSWORD and
// IROH_INFLUXDB_TOKEN instead.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	window := cfg.DTMFTimeout()
package config
