package repository

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// FirestorePinger proves the client can reach Firestore by reading at most one listing.
type FirestorePinger struct {
	Client *firestore.Client
}

func (p FirestorePinger) Ping(ctx context.Context) error {
	iter := p.Client.Collection(listingsCollection).Limit(1).Documents(ctx)
	defer iter.Stop()

	if _, err := iter.Next(); err != nil && err != iterator.Done {
		return err
	}
	return nil
}
