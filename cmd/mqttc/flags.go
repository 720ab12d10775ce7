package main

import "github.com/urfave/cli/v2"

var FlagLogLevel = &cli.StringFlag{
	Name:    "log-level",
	EnvVars: []string{"MQTTC_LOG_LEVEL"},
	Value:   "info",
}

var FlagLogWriter = &cli.StringFlag{
	Name:    "log-writer",
	Usage:   "one of: [console, json]",
	EnvVars: []string{"MQTTC_LOG_WRITER"},
	Value:   "console",
}

var FlagConfig = &cli.PathFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "YAML client configuration; flags override it",
	EnvVars: []string{"MQTTC_CONFIG"},
}

var FlagBroker = &cli.StringFlag{
	Name:    "broker",
	Aliases: []string{"b"},
	Usage:   "tcp://host:1883, tls://host:8883, ws://host/mqtt, ...",
	EnvVars: []string{"MQTTC_BROKER"},
}

var FlagClientID = &cli.StringFlag{
	Name:    "client-id",
	Aliases: []string{"i"},
	EnvVars: []string{"MQTTC_CLIENT_ID"},
}

var FlagUsername = &cli.StringFlag{
	Name:    "username",
	Aliases: []string{"u"},
	EnvVars: []string{"MQTTC_USERNAME"},
}

var FlagPassword = &cli.StringFlag{
	Name:    "password",
	Aliases: []string{"P"},
	EnvVars: []string{"MQTTC_PASSWORD"},
}

var FlagKeepAlive = &cli.UintFlag{
	Name:    "keep-alive",
	Usage:   "keep-alive interval in seconds, 0 disables",
	EnvVars: []string{"MQTTC_KEEP_ALIVE"},
	Value:   60,
}

var FlagMetricsAddr = &cli.StringFlag{
	Name:    "metrics-addr",
	Usage:   "serve expvar metrics on this address, e.g. :9090",
	EnvVars: []string{"MQTTC_METRICS_ADDR"},
}

var FlagTopic = &cli.StringFlag{
	Name:     "topic",
	Aliases:  []string{"t"},
	Required: true,
}

var FlagTopics = &cli.StringSliceFlag{
	Name:     "topic",
	Aliases:  []string{"t"},
	Usage:    "topic filter, repeatable",
	Required: true,
}

var FlagQoS = &cli.UintFlag{
	Name:    "qos",
	Aliases: []string{"q"},
	Usage:   "0, 1 or 2",
}

var FlagMessage = &cli.StringFlag{
	Name:    "message",
	Aliases: []string{"m"},
	Usage:   "payload; read from stdin when empty",
}

var FlagRetain = &cli.BoolFlag{
	Name:    "retain",
	Aliases: []string{"r"},
}

var FlagCount = &cli.IntFlag{
	Name:  "count",
	Usage: "number of times to publish the message",
	Value: 1,
}

var FlagInterval = &cli.DurationFlag{
	Name:  "interval",
	Usage: "pause between repeated publishes",
}

var FlagLimit = &cli.IntFlag{
	Name:  "limit",
	Usage: "exit after this many messages, 0 runs until interrupted",
}

var FlagVerbose = &cli.BoolFlag{
	Name:    "verbose",
	Aliases: []string{"v"},
	Usage:   "print QoS and flags with each message",
}
