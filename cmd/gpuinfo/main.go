// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"encoding/json"
	"flag"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/devblok/gpures/gfx/vkr"
)

var (
	debug  = flag.Bool("vkdbg", false, "Load Vulkan validation layers")
	indent = flag.Bool("indent", false, "Indent the output")
)

func main() {
	flag.Parse()
	log.SetOutput(os.Stderr)

	instance, err := vkr.NewInstance(vkr.DefaultApplicationInfo, nil, vkr.InstanceConfiguration{
		Debug: *debug,
	}, log.WithField("component", "instance"))
	if err != nil {
		log.Fatal(err)
	}
	defer instance.Destroy()

	enc := json.NewEncoder(os.Stdout)
	if *indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(instance.PhysicalDevicesInfo()); err != nil {
		log.Error(err)
	}
}
