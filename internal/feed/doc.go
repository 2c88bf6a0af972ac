// Package feed handles the RSS side of podsnip: fetching and caching feed
// documents, parsing the item metadata episode tracking needs, syncing
// episodes into the store on a schedule, and rewriting enclosure URLs when a
// feed is served.
//
// Rewriting operates on the raw cached bytes and touches only enclosure url
// attributes, so podcast apps see the upstream feed exactly as published
// apart from the redirected audio links.
package feed
