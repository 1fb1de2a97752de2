// Package line relays chat replies to the LINE Messaging API and decodes the
// webhook payloads LINE delivers.
//
// Use [New] with the channel access token to build a [Client], then call
// [Client.ReplyText] with the reply token of an incoming event. Webhook
// bodies are authenticated with [VerifySignature] against the channel
// secret before they are parsed with [ParseWebhook].
package line
