//go:build tools

// Package protos pins the protoc plugins used to generate protos/gen.
package protos

import (
	_ "google.golang.org/grpc/cmd/protoc-gen-go-grpc"
)
