// Package topic parses composite gateway topics and names the built-in topics.
//
// A topic has the form "Service[#Object[#Event]]". Subscribers are indexed by
// scope keys: the bare service name, or "Service#Object".
package topic
