// Package integration runs complete sessions against real backends: host
// processes for the local backend and a Docker daemon for the docker
// backend.
//
// The tests are skipped unless VIBEKIT_INTEGRATION_TESTS=1. Docker tests
// additionally need a reachable daemon and pull VIBEKIT_TEST_IMAGE
// (default alpine:3.20).
package integration
