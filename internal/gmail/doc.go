// Package gmail provides a client for the Gmail API operations the
// responder needs.
//
// The client covers:
//   - Listing inbox messages and fetching them with full headers
//   - Adding labels to threads, resolving or creating labels by name
//   - Reading the mailbox profile
//   - Sending RFC 5322 messages through users.messages.send
//
// Every call is paced by a client-side quota limiter (golang.org/x/time/rate)
// sized from Gmail's per-user quota units, traced, and recorded in metrics.
// Failed calls are not retried.
//
// Example usage:
//
//	client, err := gmail.NewClient(ctx, creds.HTTPClient(), gmail.ClientOptions{})
//	if err != nil {
//	    return err
//	}
//
//	refs, err := client.ListMessages(ctx, "is:inbox", 10)
//	if err != nil {
//	    return err
//	}
//
//	for _, ref := range refs {
//	    msg, err := client.GetMessage(ctx, ref.ID)
//	    ...
//	}
package gmail
