package validators

import "go.mongodb.org/mongo-driver/bson"

var PersonValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"required":             []string{"_id", "barcode", "first_name", "last_name", "category"},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},
			"barcode": bson.M{
				"bsonType": "string",
				"pattern":  "^[0-9]{4,32}$",
			},
			"first_name": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 100,
			},
			"last_name": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 100,
			},
			"category": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 40,
			},
		},
	},
}

var BookValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"required":             []string{"_id", "accession_number", "title", "total_copies", "available_copies"},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},
			"accession_number": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 40,
			},
			"isbn": bson.M{
				"bsonType": "string",
				"pattern":  "^[0-9]{9}[0-9X]$|^[0-9]{13}$",
			},
			"title": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 300,
			},
			"total_copies": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  0,
			},
			"available_copies": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  0,
			},
		},
	},
	"$expr": bson.M{"$lte": bson.A{"$available_copies", "$total_copies"}},
}

var EquipmentValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"required":             []string{"_id", "code", "name", "status"},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},
			"code": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 40,
			},
			"name": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 200,
			},
			"status": bson.M{
				"enum": []string{"AVAILABLE", "IN_USE", "MAINTENANCE"},
			},
			"max_minutes": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  0,
			},
		},
	},
}
