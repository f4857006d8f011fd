// Package containers starts the Docker dependencies used by metrink
// integration tests: a MySQL sample store, a Mosquitto broker for MQTT
// ingest and a Mailpit SMTP sink for alert delivery.
//
// Every file is guarded by the "integration" build tag:
//
//	go test -tags=integration ./...
//
// Containers are started once per package from TestMain and terminated after
// m.Run returns.
package containers
