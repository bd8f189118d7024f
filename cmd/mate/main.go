package main

import (
	"flag"

	service "github.com/wisersense-io/mate-service"
)

func main() {
	configFile := flag.String("config", service.DefaultConfigFile, "配置文件")
	flag.Parse()

	service.NewApp(*configFile).Run()
}
