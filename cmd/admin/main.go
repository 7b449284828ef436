package main

import (
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"
	"log"

	app "github.com/automationpanda/bulldoggy"
	"github.com/automationpanda/bulldoggy/db"
)

/*
How to provision the web application.

1. > ./admin -cmd=pepper
CPjaot8hYLXpm4xIaXHWsQKJWkelY3msP6AbR8wYmrE=
   [put this in .config.yaml as pepper]
2. > ./admin -cmd=key
   [put this in .config.yaml as signing_key]
3. > ./admin -cmd=adduser -users=users.gob -pepper=... -username=pythonista -password=I<3testing
   [this appends the user to users.gob, which the web application reads]
*/

func main() {
	var (
		cmd      string
		users    string
		pepper   string
		username string
		password string
	)
	flag.StringVar(&cmd, "cmd", "", "The command to execute: pepper, key, adduser. [Required]")
	flag.StringVar(&users, "users", "users.gob", "The path to the users file. [Used when cmd=adduser]")
	flag.StringVar(&pepper, "pepper", "", "The pepper to use when hashing a password. [Required when cmd=adduser]")
	flag.StringVar(&username, "username", "", "The username for the user. [Required when cmd=adduser]")
	flag.StringVar(&password, "password", "", "The password for the user. [Required when cmd=adduser]")
	flag.Parse()

	switch cmd {
	case "pepper", "key":
		generateSecret()
	case "adduser":
		if pepper == "" || username == "" || password == "" {
			flag.Usage()
			return
		}
		addUser(users, pepper, username, password)
	default:
		flag.Usage()
	}
}

func generateSecret() {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		log.Fatal(err)
	}
	fmt.Println(base64.StdEncoding.EncodeToString(b))
}

func addUser(users, pepper, username, password string) {
	store, err := db.NewUserStoreFile(users, pepper)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	if _, err := store.ByUsername(username); err == nil {
		log.Fatalf("user %q already exists", username)
	}

	user := app.User{Username: username}
	if err := store.Create(&user, password); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("added %s to %s\n", username, users)
}
