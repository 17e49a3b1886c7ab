// Package mongo implements store.Store using the grove ORM with MongoDB
// driver. The conditional Transition maps to a single FindOneAndUpdate,
// so claim arbitration serializes on the document without any
// application-level locking.
//
// The caller owns the *grove.DB lifecycle -- mongo never closes it. Pass
// the db handle through the constructor:
//
//	import (
//	    "github.com/xraph/grove"
//	    "github.com/xraph/hail/store/mongo"
//	)
//
//	db, _ := grove.Open(ctx, "mongo", dsn)
//	store := mongo.New(db)
//	store.Migrate(ctx)
package mongo
