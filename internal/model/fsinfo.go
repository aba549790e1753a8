// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the FSInfo struct, which stores file system metadata.
//
// Why store the file path?
//
// A node's definition may come from any file of a directory. Keeping the path
// lets graph errors from Definition.Build, and so the validate and run
// commands, say where a node was declared.
package model

// FSInfo records where a node was declared.
type FSInfo struct {
	FilePath string
}

func NewFSInfo(filePath string) *FSInfo {
	return &FSInfo{
		FilePath: filePath,
	}
}
