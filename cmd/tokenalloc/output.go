package main

import (
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"tokenring/internal/config"
	"tokenring/internal/offline"
)

type assignmentView struct {
	NodeID int      `yaml:"node_id"`
	Node   string   `yaml:"node"`
	Rack   int      `yaml:"rack"`
	Tokens []string `yaml:"tokens"`
}

type placement struct {
	Input        string         `yaml:"input"`
	Token        string         `yaml:"token"`
	Replicas     []string       `yaml:"replicas"`
	BlockFor     int            `yaml:"block_for,omitempty"`
	BlockForEach map[string]int `yaml:"block_for_each,omitempty"`

	// Set only when a consistency level is requested.
	Acks      int    `yaml:"acks,omitempty"`
	Available *bool  `yaml:"available,omitempty"`
	Problem   string `yaml:"problem,omitempty"`
}

func writeAssignments(w io.Writer, format string, assignments []offline.Assignment) error {
	views := make([]assignmentView, 0, len(assignments))
	for _, a := range assignments {
		v := assignmentView{NodeID: a.NodeID, Node: a.Node.String(), Rack: a.RackID}
		for _, t := range a.Tokens {
			v.Tokens = append(v.Tokens, t.String())
		}
		views = append(views, v)
	}

	switch format {
	case config.OutputYAML:
		return writeYAML(w, views)
	case config.OutputTable:
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"Node ID", "Node", "Rack", "Tokens"})
		table.SetAutoWrapText(false)
		for _, v := range views {
			table.Append([]string{strconv.Itoa(v.NodeID), v.Node, strconv.Itoa(v.Rack), strings.Join(v.Tokens, ",")})
		}
		table.Render()
		return nil
	default:
		return errors.Errorf("unknown output format %q", format)
	}
}

func writePlacements(w io.Writer, format string, placements []placement) error {
	switch format {
	case config.OutputYAML:
		return writeYAML(w, placements)
	case config.OutputTable:
		table := tablewriter.NewWriter(w)
		header := []string{"Input", "Token", "Replicas"}
		withBlockFor := len(placements) > 0 && placements[0].BlockFor > 0
		withAvailability := len(placements) > 0 && placements[0].Available != nil
		if withBlockFor {
			header = append(header, "Block For")
		}
		if withAvailability {
			header = append(header, "Acks", "Available")
		}
		table.SetHeader(header)
		table.SetAutoWrapText(false)
		for _, p := range placements {
			row := []string{p.Input, p.Token, strings.Join(p.Replicas, ",")}
			if withBlockFor {
				row = append(row, strconv.Itoa(p.BlockFor))
			}
			if withAvailability {
				available := "yes"
				if !*p.Available {
					available = "no: " + p.Problem
				}
				row = append(row, strconv.Itoa(p.Acks), available)
			}
			table.Append(row)
		}
		table.Render()
		return nil
	default:
		return errors.Errorf("unknown output format %q", format)
	}
}

func writeYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
