// Package offline plans token assignments for a whole cluster before any of
// its nodes start.
//
// Nodes are added to a simulated single-datacenter ring one at a time,
// visiting racks round-robin in the order operators are expected to start
// them. After each node the replicated ownership of its rack is compared
// with the previous checkpoint for that rack and excessive growth in spread
// is reported.
package offline
