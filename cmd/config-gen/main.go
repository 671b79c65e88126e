// A simple utility for generating random port numbers in the config files.
//
// When run from the root directory, this utility will overwrite the addresses in
// config/*.json with addresses of the format :*, referring to a pseudo-randomly selected
// local port (above 1024).
// This can be used during testing on shared servers, to (try and) avoid port collisions.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/DistributedClocks/tracing"

	mandelmpi "example.org/parabench/mandelmpi"
)

func genPort() int32 {
	return rand.Int31n(35535-1024) + 1024
}

func updateConfig(fileName string, emptyConfig interface{}, updateFn func()) {
	path := filepath.Join("config", fileName)
	fileRead, err := os.Open(path)
	if err != nil {
		log.Fatal(err)
	}
	defer fileRead.Close()
	decoder := json.NewDecoder(fileRead)
	err = decoder.Decode(emptyConfig)
	if err != nil {
		log.Fatal(err)
	}
	updateFn()
	fileWrite, err := os.Create(path)
	if err != nil {
		log.Fatal(err)
	}
	defer fileWrite.Close()
	encoder := json.NewEncoder(fileWrite)
	encoder.SetIndent("", "\t")
	err = encoder.Encode(emptyConfig)
	if err != nil {
		log.Fatal(err)
	}
}

func main() {
	procs := flag.Int("n", 0, "number of participants (default: keep the current peer count)")
	trace := flag.Bool("trace", false, "point the participants at the tracing server")
	flag.Parse()

	rand.Seed(time.Now().UnixNano())

	traceServerAddr := fmt.Sprintf(":%v", genPort())

	traceServerConfig := &tracing.TracingServerConfig{}
	updateConfig("tracing_server_config.json", traceServerConfig, func() {
		traceServerConfig.ServerBind = traceServerAddr
	})

	mandelConfig := &mandelmpi.Config{}
	updateConfig("mandel_config.json", mandelConfig, func() {
		n := len(mandelConfig.Peers)
		if *procs > 0 {
			n = *procs
		}
		mandelConfig.Peers = make([]mandelmpi.PeerAddr, n)
		for i := range mandelConfig.Peers {
			mandelConfig.Peers[i] = mandelmpi.PeerAddr(fmt.Sprintf(":%v", genPort()))
		}
		mandelConfig.Procs = n
		if *trace || mandelConfig.TracerServerAddr != "" {
			mandelConfig.TracerServerAddr = traceServerAddr
		}
	})
}
