package main

import (
	"flag"
	"net/http"

	"github.com/sirupsen/logrus"

	"courier/internal/relay"
)

func main() {
	listen := flag.String("listen", ":8080", "listen address")
	flag.Parse()

	srv := relay.NewServer()

	logrus.WithField("addr", *listen).Info("Relay listening")
	if err := http.ListenAndServe(*listen, srv.Handler()); err != nil {
		logrus.WithError(err).Fatal("Relay stopped")
	}
}
