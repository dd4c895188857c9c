// README: Firebase Admin SDK initialisation: RTDB roster client and FCM messaging client.
package infra

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

type Firebase struct {
	DB        *db.Client
	Messaging *messaging.Client
}

// NewFirebase creates the app and both clients. If credentialsFile is empty,
// application-default credentials are used. An empty databaseURL is derived from the
// project's default RTDB instance.
func NewFirebase(ctx context.Context, projectID, credentialsFile, databaseURL string) (*Firebase, error) {
	if databaseURL == "" && projectID != "" {
		databaseURL = fmt.Sprintf("https://%s-default-rtdb.firebaseio.com", projectID)
	}
	opts := []option.ClientOption{}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID, DatabaseURL: databaseURL}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase.NewApp: %w", err)
	}
	dbClient, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialising firebase RTDB client: %w", err)
	}
	msgClient, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialising firebase messaging client: %w", err)
	}
	return &Firebase{DB: dbClient, Messaging: msgClient}, nil
}
