// Package testutil contains test doubles and builders shared across package
// tests: spy executors that count tool invocations, recording hooks and a
// fluent conversation builder. They are not intended for production usage.
package testutil
