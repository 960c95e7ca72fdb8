// Copyright 2023 Ross Light
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//		 https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"io/fs"
	"path"
	"strings"
)

// treeNode is a directory or document in the index's file tree.
type treeNode struct {
	Name string
	// Path is the slash-separated path of a document.
	// It is empty for directories.
	Path     string
	Children []*treeNode
	// Active is set for the document being viewed.
	Active bool
}

func (n *treeNode) IsDir() bool {
	return n.Path == ""
}

// buildTree returns the ".org" documents in fsys
// grouped by directory in lexical order.
// Hidden files and directories are skipped,
// as are directories without documents.
func buildTree(fsys fs.FS) ([]*treeNode, error) {
	root := new(treeNode)
	dirs := map[string]*treeNode{".": root}
	err := fs.WalkDir(fsys, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if name != "." && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || path.Ext(name) != ".org" {
			return nil
		}
		parent := dirNode(dirs, path.Dir(name))
		parent.Children = append(parent.Children, &treeNode{
			Name: d.Name(),
			Path: name,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return root.Children, nil
}

// dirNode returns the node for the given directory,
// creating it and its ancestors as needed.
func dirNode(dirs map[string]*treeNode, dir string) *treeNode {
	if n := dirs[dir]; n != nil {
		return n
	}
	parent := dirNode(dirs, path.Dir(dir))
	n := &treeNode{Name: path.Base(dir)}
	parent.Children = append(parent.Children, n)
	dirs[dir] = n
	return n
}

// markActive sets Active on the document with the given path.
func markActive(nodes []*treeNode, name string) bool {
	for _, n := range nodes {
		if n.Path == name || markActive(n.Children, name) {
			n.Active = n.Path == name
			return true
		}
	}
	return false
}
