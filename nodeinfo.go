package main

import (
	"context"
	"os"

	"github.com/go-json-experiment/json"

	"github.com/tailfeather/fedd/fed"
)

type NodeInfoCmd struct {
	Server string `arg:"" help:"server to query, as a hostname or url"`
}

func (n *NodeInfoCmd) Run(ctx *Context) error {
	ni, err := fed.GetNodeInfo(context.Background(), n.Server)
	if err != nil {
		return err
	}
	return json.MarshalOptions{}.MarshalFull(json.EncodeOptions{
		Indent: "  ",
	}, os.Stdout, ni)
}
