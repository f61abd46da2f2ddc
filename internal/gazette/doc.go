// Package gazette defines the core types shared across the watcher subsystems
// and the client that scrapes the gazette listing page.
//
// A fetch cycle is: Client.FetchPosts (GET + parse) -> PostStore.InsertIfNew
// (de-duplicate by URL and persist). Notification relays read unnotified posts
// back out of the PostStore and hand them to a Notifier.
package gazette
